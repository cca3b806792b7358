// Package async hosts long-running background services.
//
// A Host runs a Service such as a message consumer in its own goroutine,
// recovers panics and reports an unexpected exit on its Fatal channel so
// the process can shut down instead of silently losing the service.
//
//	host := async.NewHost("permission-consumer", consumer, logger)
//	host.Start(ctx)
//	defer host.Stop(shutdownCtx)
//
//	select {
//	case <-ctx.Done():
//	case err := <-host.Fatal():
//		return err
//	}
package async
