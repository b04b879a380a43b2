package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"ecofarm/internal/automation"
	"ecofarm/internal/config"
	"ecofarm/internal/db"
	"ecofarm/internal/dispatch"
	"ecofarm/internal/engine"
	"ecofarm/internal/mqtt"
	"ecofarm/internal/notify"
	"ecofarm/internal/realtime"
	"ecofarm/internal/redis"
	"ecofarm/internal/scheduler"
	"ecofarm/internal/taskqueue"
	"ecofarm/internal/timeseries"
	"ecofarm/internal/web"

	"github.com/pion/mdns/v2"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	dbConn, err := db.NewDB(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer dbConn.Close()

	redisClient := redis.NewRedisClient(cfg.Redis.Addr)

	mqttClient, err := mqtt.NewMQTTClient(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Username, cfg.MQTT.Password)
	if err != nil {
		log.Fatalf("Failed to connect to MQTT: %v", err)
	}

	tsWriter := timeseries.NewInfluxWriter(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
	defer tsWriter.Close()

	broadcaster := realtime.LogBroadcaster{}
	notifier := notify.NewService(dbConn)
	dispatcher := dispatch.NewDispatcher(mqttClient)

	queueClient := taskqueue.NewClient(cfg.Redis.Addr)
	defer queueClient.Close()
	taskHandler := taskqueue.NewHandler(dbConn, dispatcher, broadcaster)
	workers := taskqueue.StartWorkers(cfg.Redis.Addr, taskHandler)

	evaluator := automation.NewEvaluator(dbConn, dispatcher, notifier, broadcaster)

	eng := engine.NewEngine(mqttClient, redisClient, dbConn, tsWriter, evaluator, notifier, broadcaster)
	if err := eng.Start(); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	sched := scheduler.NewScheduler(dbConn, dispatcher, queueClient, notifier, broadcaster)
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	webServer := web.NewServer(mqttClient)
	go webServer.Start(fmt.Sprintf(":%d", cfg.App.Port))

	go advertiseMDNS(cfg.MDNS.LocalName)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	sched.Stop()
	eng.Stop()
	workers.Stop()
	log.Println("Shutdown complete")
}

// advertiseMDNS answers mDNS queries for the engine's local name so gateways
// on the LAN can find it without static configuration.
func advertiseMDNS(localName string) {
	addr4, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddressIPv4)
	if err != nil {
		log.Println("Failed to resolve UDP4 address for mDNS:", err)
		return
	}
	addr6, err := net.ResolveUDPAddr("udp6", mdns.DefaultAddressIPv6)
	if err != nil {
		log.Println("Failed to resolve UDP6 address for mDNS:", err)
		return
	}

	l4, err := net.ListenUDP("udp4", addr4)
	if err != nil {
		log.Println("Failed to listen on UDP4 for mDNS:", err)
		return
	}
	l6, err := net.ListenUDP("udp6", addr6)
	if err != nil {
		log.Println("Failed to listen on UDP6 for mDNS:", err)
		return
	}

	if _, err := mdns.Server(ipv4.NewPacketConn(l4), ipv6.NewPacketConn(l6), &mdns.Config{
		LocalNames: []string{localName},
	}); err != nil {
		log.Println("Failed to start mDNS server:", err)
	}
}
