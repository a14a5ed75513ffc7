package runtime

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
)

// Context is the execution handle for one reserved queue message. Stages are
// stateless between invocations; everything a handler may touch arrives
// either through its constructor deps or through this context's payload.
type Context struct {
	Ctx  context.Context
	Tube string
	Raw  []byte
}

func NewContext(ctx context.Context, tube string, raw []byte) *Context {
	return &Context{Ctx: ctx, Tube: tube, Raw: raw}
}

// Decode unmarshals the reserved message into the stage's task struct.
func (c *Context) Decode(v any) error {
	if c == nil || len(c.Raw) == 0 {
		return fmt.Errorf("empty task payload")
	}
	return json.Unmarshal(c.Raw, v)
}

// VerifyAPIKey checks a task's embedded shared secret against the configured
// worker key. Every consumer-side entry point performs this check so a
// forged message cannot drive the pipeline.
func VerifyAPIKey(got, want string) error {
	if want == "" {
		return fmt.Errorf("worker api key not configured")
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return fmt.Errorf("invalid api key")
	}
	return nil
}
