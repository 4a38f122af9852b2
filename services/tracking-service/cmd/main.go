package main

import "github.com/quangdang46/shipment-tracker/services/tracking-service/internal/cli"

func main() {
	cli.Execute()
}
