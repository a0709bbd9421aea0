package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/MarkWieczorek/bridgy-fed/db"
	"github.com/MarkWieczorek/bridgy-fed/tasks"
	"github.com/MarkWieczorek/bridgy-fed/util"
	"github.com/MarkWieczorek/bridgy-fed/web"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	log.Println("Opening database...")
	database := db.GetDB()
	defer database.Close()

	tasks.StartWebmentionWorker(conf)

	startServing(conf)
}

func startServing(conf *util.AppConfig) {
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := web.Router(conf); err != nil {
			log.Fatalln(err)
		}
	}()

	<-done
	log.Println("Stopping webmention server")
}
