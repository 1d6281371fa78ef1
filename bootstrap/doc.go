// Package bootstrap runs a framepipe process: it applies and validates the
// typed config, initializes logging, starts the registered components, runs
// the hooks and the task, and stops everything in reverse order.
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.RegisterComponent(ledgerComponent)
//	err = app.RunTask(ctx, func(ctx context.Context) error {
//	    _, err := p.Run(ctx)
//	    return err
//	})
//
// SIGINT and SIGTERM cancel the task's context.
package bootstrap
