// Package engine wires the docintel subsystems together. The Engine
// supervisor owns the configuration, the hook registry, the task registry,
// the middleware chain, the queue router, and the worker slot pool, and
// provides Register/Enqueue operations plus the start/stop lifecycle.
//
// A minimal worker:
//
//	cfg := docintel.DefaultConfig()
//	eng, err := engine.New(cfg, redisbroker)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine.Register(eng, task.NewDefinition("process_document", handleDocument,
//	    task.WithQueue("documents")))
//	if err := eng.Run(ctx); err != nil {
//	    os.Exit(1) // forced drain: tasks were requeued, exit non-zero
//	}
//
// The engine is an explicitly constructed instance holding all state; there
// are no package-level singletons.
package engine
