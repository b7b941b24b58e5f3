package artifact

import (
	"fmt"

	"github.com/lalomorales22/roundtable/core"
)

var (
	// ErrNotFound is returned when an artifact for the given conversation / id
	// pair does not exist in the underlying store.
	ErrNotFound = fmt.Errorf("artifact %w", core.ErrNotFound)
)
