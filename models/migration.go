package models

import (
	"log"

	"bitbucket.org/mmdatafocus/counts_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &User{},
		&CountItem{},
		&MilkSession{}, &MilkEntry{},
		&RestockSession{}, &RestockEntry{},
		&SessionEventRecord{},
		&History{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
