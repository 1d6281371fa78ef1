// Package sse streams run events to HTTP clients as Server-Sent Events.
//
// A Hub routes encoded events to connected clients. Each client subscribes
// to one run, or to every run, and receives "state" events as the pipeline
// moves through its lifecycle and a final "report" event when it is done.
//
//	hub := sse.NewHub(log)
//	go hub.Run()
//	router.GET("/events", func(c *gin.Context) {
//	    sse.ServeSSE(hub, c.Writer, c.Request, c.Query("run"), log)
//	})
//	hub.Publish(runID, sse.EventTypeState, sse.StateEvent{...})
package sse
