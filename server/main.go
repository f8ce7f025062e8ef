/******************************************************************************
 *
 *  Description :
 *
 *    Replica entrypoint: loads configuration, opens Persistence and the
 *    Coordinator, wires the Replica Fabric and Group Chat Service, starts
 *    the push gateway, and runs the TCP accept loop and admin HTTP mux
 *    until shutdown.
 *
 *****************************************************************************/

package main

import (
	"context"
	"log"
	"net"

	"github.com/riverline-chat/riverline/server/coordinator/redisstore"
	"github.com/riverline-chat/riverline/server/push"
	_ "github.com/riverline-chat/riverline/server/push/fcm"
	"github.com/riverline-chat/riverline/server/store"
	"github.com/riverline-chat/riverline/server/store/postgres"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("main: %v", err)
	}
	log.Printf("main: starting replica %q", cfg.replicaID)

	adapter, err := postgres.New(cfg.worker)
	if err != nil {
		log.Fatalf("main: postgres.New: %v", err)
	}
	if err := store.Open(adapter, cfg.dsn()); err != nil {
		log.Fatalf("main: store.Open: %v", err)
	}
	defer store.Close()

	coord, err := redisstore.New(cfg.redisAddr(), cfg.redisPassword, 0)
	if err != nil {
		log.Fatalf("main: redisstore.New: %v", err)
	}
	defer coord.Close()

	if cfg.pushConfig != "" {
		if err := push.Init(cfg.pushConfig); err != nil {
			log.Printf("main: push.Init: %v (push notifications disabled)", err)
		}
	}
	defer push.Stop()

	fabric := newFabric(coord, cfg.replicaID)
	groupSvc := newGroupChatService(coord, fabric, cfg.replicaID)

	ctx, cancel := context.WithCancel(context.Background())
	go serveAdmin(ctx, cfg.adminAddr, coord)

	log.Printf("main: listening for chat connections on %s (admin on %s)", cfg.listenAddr, cfg.adminAddr)
	err = listenAndServe(cfg.listenAddr, cfg.maxConns, fabric, func(conn net.Conn) {
		handleConnection(conn, fabric, coord, groupSvc)
	})
	cancel()
	if err != nil {
		log.Fatalf("main: listenAndServe: %v", err)
	}
}
