package publish

import (
	"context"
	"fmt"
)

// localTarget covers the "local kernel block interface" case from §6: no
// listener is bound, the Nexus is simply addressable as a local device
// node, so it returns a file:// endpoint and drains/closes instantly.
type localTarget struct {
	nexusName string
	endpoint  string
}

func newLocalTarget(nexusName string) *localTarget {
	return &localTarget{nexusName: nexusName}
}

func (t *localTarget) Listen(ctx context.Context) (string, error) {
	t.endpoint = fmt.Sprintf("file:///dev/nexus-%s", t.nexusName)
	return t.endpoint, nil
}

func (t *localTarget) Endpoint() string { return t.endpoint }

func (t *localTarget) Drain(ctx context.Context) error { return nil }

func (t *localTarget) Close(ctx context.Context) error { return nil }
