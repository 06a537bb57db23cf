// Package wsclient receives server-pushed events from the open platform over
// a long-lived WebSocket.
//
// A Client negotiates a connection endpoint, dials it, and then runs two
// loops: the session, which owns the socket, answers pings, sends the
// application heartbeat and watches liveness; and the dispatcher, which
// reassembles fragmented messages, calls the EventHandler and queues one
// correlated response per event.
//
// # Basic Usage
//
//	handler := wsclient.HandlerFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
//	    fmt.Printf("event: %s\n", payload)
//	    return nil, nil
//	})
//
//	client := wsclient.New(appID, appSecret, handler)
//	if err := client.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Reconnecting
//
// Run covers exactly one connection. The server's reconnect advice is
// available from ReconnectPolicy; a supervising loop creates a new Client
// for each attempt, optionally seeding it with WithClientConfig.
//
// # Configuration
//
// The client supports functional options for configuration:
//
//	client := wsclient.New(appID, appSecret, handler,
//	    wsclient.WithDomain(wsclient.LarkDomain),
//	    wsclient.WithHeartbeatTimeout(90*time.Second),
//	    wsclient.WithWorkers(4),
//	    wsclient.WithRoute("card", wsclient.Route{Strategy: wsclient.StrategyHandle, Handler: cardHandler}),
//	)
package wsclient
