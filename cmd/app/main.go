package main

import (
	"PalmSpeak/internal/config"
	"PalmSpeak/pkg/log"
	"PalmSpeak/pkg/redis"
	websocketPkg "PalmSpeak/pkg/websocket"
	"context"
	"github.com/joho/godotenv"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	envErr := godotenv.Load()

	logger := log.NewLogger()
	if envErr != nil {
		logger.Warnf("No .env file loaded, using process environment: %v", envErr)
	}

	validator := config.NewValidator()
	env, err := config.LoadEnv(validator)
	if err != nil {
		logger.Fatal(err)
	}

	adminApp := config.NewFiber("PalmSpeak Admin")
	redisServer := redis.New(redis.Config{
		Address:       env.RedisAddress,
		Password:      env.RedisPassword,
		DB:            env.RedisDB,
		Channel:       env.RedisChannel,
		TranscriptKey: env.RedisTranscriptKey,
		TranscriptTTL: env.RedisTranscriptTTL,
	})
	landmarkClient := websocketPkg.NewLandmarkClient(websocketPkg.DefaultOptions(env.LandmarkServiceURL), logger)

	server, err := config.NewServer(
		config.WithEnv(env),
		config.WithAdminFiber(adminApp),
		config.WithLogger(logger),
		config.WithValidator(validator),
		config.WithMiddleware(),
		config.WithRedisServer(redisServer),
		config.WithLandmarkClient(landmarkClient),
		config.WithS3Client(),
		config.WithUtils(),
	)
	if err != nil {
		logger.Fatal(err)
	}

	if err := server.RegisterHandler(); err != nil {
		logger.Fatal(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.Info("Server started successfully")

	<-sigChan
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Shutdown finished with errors: %v", err)
		return
	}

	logger.Info("Server stopped")
}
