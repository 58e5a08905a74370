// Package store persists training runs and trained models in Redis.
//
// # Overview
//
// A run record describes one invocation of the trainer: its configuration
// arguments, progress, champion and final status. The trained model is stored
// next to it as an opaque blob produced by the tpg codec. While a run is in
// progress the trainer publishes one generation event per completed
// generation, so other processes can follow it live.
//
// # Multi-Instance Support
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so that
// several tangle installations can share one Redis server.
//
// # Redis Schema
//
// Runs: tangle:{instance_name}:run:{run_id} (hash)
// Models: tangle:{instance_name}:model:{run_id} (string)
//
// Pub/Sub channel: tangle:{instance_name}:generation_events
//
// # Usage Example
//
//	client, err := store.NewClient(&redis.Options{Addr: "localhost:6379"}, "default")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	run := &store.Run{ID: uuid.New().String(), Name: "iris", Status: store.RunStatusRunning}
//	if err := client.SaveRun(ctx, run); err != nil {
//		log.Fatal(err)
//	}
package store
