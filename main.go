package main

import (
	"net/http"
	"os"

	"memonote/config/database"
	"memonote/pkg/logger"
	"memonote/router"
	"memonote/socket"

	"github.com/joho/godotenv"
)

func main() {
	err := godotenv.Load()

	logger.Init()
	defer logger.Log.Sync()

	if err != nil {
		// Not fatal; containers set the environment directly.
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	db := database.Connect()
	defer db.Close()
	database.EnsureSchema(db)

	hub := socket.NewHub()
	go hub.Run()

	handler := router.Setup(db, hub)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	logger.Sugar.Infof("Memonote backend listening on :%s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logger.Sugar.Fatalf("Server stopped: %v", err)
	}
}
