// Command twofa serves TOTP enrollment, two-step login, backup codes and
// trusted devices over HTTP, and consumes account lifecycle events.
package main

import (
	"context"

	"github.com/shandysiswandi/twofa/internal/app"
)

func main() {
	a := app.New()
	<-a.Start()

	ctx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout())
	defer cancel()
	a.Stop(ctx)
}
