package redis

import (
	"strings"
)

var (
	App     = "shiptrack" // project code
	Env     = "dev"       // dev|stg|prod
	Version = "v1"        // schema version for easy bust
)

func join(parts ...string) string {
	return strings.Join(parts, ":")
}

func pfx() string {
	return join(App, Env, Version)
}

// NormalizeAddress lowercases and trims an account address
func NormalizeAddress(addr string) string { return strings.ToLower(strings.TrimSpace(addr)) }

// ShipmentSnapshotKey holds the mirrored shipment snapshot of one account (hash: id -> json)
func ShipmentSnapshotKey(account string) string {
	return join(pfx(), "shipments", NormalizeAddress(account))
}

// SnapshotMetaKey holds when the snapshot of one account was committed
func SnapshotMetaKey(account string) string {
	return join(pfx(), "shipments", NormalizeAddress(account), "meta")
}
