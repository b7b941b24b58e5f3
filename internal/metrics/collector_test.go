package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lalomorales22/roundtable/client"
	"github.com/lalomorales22/roundtable/engine"
	rttestutil "github.com/lalomorales22/roundtable/internal/testutil"
	"github.com/lalomorales22/roundtable/session"
)

func newTestCollector() *Collector {
	return NewCollector(func(o *Options) { o.Registerer = prometheus.NewRegistry() })
}

func TestCollector_RecordRound(t *testing.T) {
	c := newTestCollector()

	c.RecordRound(engine.ModeDynamic, 2, time.Second, nil)
	c.RecordRound(engine.ModeDynamic, 0, time.Second, errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(c.roundsTotal.WithLabelValues("dynamic", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.roundsTotal.WithLabelValues("dynamic", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.roundDuration))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := newTestCollector()

	c.RecordHTTPRequest("GET", "/healthz", 200, time.Millisecond)
	c.RecordHTTPRequest("GET", "/healthz", 200, time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/healthz", "200")))
}

func TestCollector_Register(t *testing.T) {
	ctx := context.Background()
	c := newTestCollector()
	callbacks := engine.NewCallbackManager()
	c.Register(callbacks)

	mock := client.NewMock().
		Reply("A", "```main.go:go\npackage main\n```").
		Fail("B", client.MissingCredential("groq"))
	store := session.NewStore()
	r := rttestutil.NewRosterBuilder(mock).Agents("A", "B").Build(t)

	eng, err := engine.New(r, func(o *engine.Options) {
		o.Store = store
		o.Callbacks = callbacks
	})
	require.NoError(t, err)

	id := rttestutil.NewConversationBuilder(store).Build(t)
	_, err = eng.RunBuildRound(ctx, id, "build it")
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.roundsTotal.WithLabelValues("build", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.agentCallsTotal.WithLabelValues("A", "mock", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.agentCallsTotal.WithLabelValues("B", "mock", "missing_credential")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.artifactsTotal.WithLabelValues("A", "go")))
}
