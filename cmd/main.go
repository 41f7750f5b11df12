package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/realtime-ai/realtime-ai/pkg/server"
	"github.com/realtime-ai/realtime-ai/pkg/trace"
	"github.com/realtime-ai/realtime-ai/pkg/voicecore"
)

func main() {
	godotenv.Load()

	ctx := context.Background()

	if err := trace.Initialize(ctx, trace.DefaultConfig()); err != nil {
		log.Printf("tracing disabled: %v", err)
	} else {
		defer trace.Shutdown(ctx)
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Fatal("OPENAI_API_KEY is required")
	}

	cfg := voicecore.LoadConfigFromEnv()

	engine := voicecore.NewVoiceEngine(cfg, func(cfg *voicecore.Config) voicecore.AIProvider {
		return voicecore.NewRealtimeProvider(cfg, apiKey)
	})

	srvCfg := server.DefaultVoiceConfig()
	srvCfg.Addr = envOr("VOICE_CORE_LISTEN_ADDR", srvCfg.Addr)
	srvCfg.AuthToken = os.Getenv("VOICE_CORE_AUTH_TOKEN")

	voiceServer := server.NewVoiceServer(srvCfg, engine)
	if err := voiceServer.Start(ctx); err != nil {
		log.Fatalf("voice server failed to start: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("shutting down")
	if err := voiceServer.Stop(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
