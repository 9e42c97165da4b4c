package redisx

import "time"

const (
	// Idempotent order creation: idem:order:create:{user_id}:{idempotency_key} -> order_id,
	// or IdemPending while the first request is still running.
	KeyIdemOrderCreate = "idem:order:create:%s:%s"
	IdemPending        = "pending"

	// Cached order document: order:{order_id} -> order JSON
	KeyOrder = "order:%s"

	// Handler dedup marker: dedup:{consumer}:{id}
	KeyDedup = "dedup:%s:%s"

	// Job queue keys live under q:{queue}:*
	KeyQueuePrefix = "q:%s:"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLIdemClaim   = 2 * time.Minute
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
