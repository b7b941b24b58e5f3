package artifact

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/lalomorales22/roundtable/core"
)

func TestInMemoryArtifactStore_AppendList(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()

	first, err := svc.AppendArtifact(ctx, core.Artifact{ConversationID: "c1", Agent: "A", Filename: "x.py", Content: "1"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be assigned, got %+v", first)
	}
	// duplicate filename creates a new row
	if _, err := svc.AppendArtifact(ctx, core.Artifact{ConversationID: "c1", Agent: "B", Filename: "x.py", Content: "2"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	list, _ := svc.ListArtifacts(ctx, "c1")
	if len(list) != 2 || list[0].Content != "1" || list[1].Content != "2" {
		t.Fatalf("unexpected list %+v", list)
	}

	// mutate returned slice
	list[0].Content = "mutated"
	again, _ := svc.ListArtifacts(ctx, "c1")
	if again[0].Content != "1" {
		t.Fatalf("expected isolation, got %q", again[0].Content)
	}

	got, err := svc.Get(ctx, "c1", first.ID)
	if err != nil || got.Filename != "x.py" {
		t.Fatalf("get: %v %+v", err, got)
	}

	empty, _ := svc.ListArtifacts(ctx, "other")
	if len(empty) != 0 {
		t.Fatalf("expected empty list for unknown conversation")
	}
}

func TestInMemoryArtifactStore_Errors(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()

	if _, err := svc.AppendArtifact(ctx, core.Artifact{Filename: "x"}); !errors.Is(err, core.ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	if _, err := svc.Get(ctx, "c1", "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryArtifactStore_DeleteConversation(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()
	_, _ = svc.AppendArtifact(ctx, core.Artifact{ConversationID: "c1", Filename: "a.txt"})

	if err := svc.DeleteConversation(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	list, _ := svc.ListArtifacts(ctx, "c1")
	if len(list) != 0 {
		t.Fatalf("expected artifacts to be gone, got %d", len(list))
	}
}

func TestInMemoryArtifactStore_Concurrency(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()
	wg := sync.WaitGroup{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = svc.AppendArtifact(ctx, core.Artifact{ConversationID: "c", Filename: fmt.Sprintf("f%d.txt", i)})
			_, _ = svc.ListArtifacts(ctx, "c")
		}(i)
	}
	wg.Wait()
	list, _ := svc.ListArtifacts(ctx, "c")
	if len(list) != 50 {
		t.Fatalf("expected 50 artifacts, got %d", len(list))
	}
}
