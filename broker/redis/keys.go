package redis

// Redis key naming conventions for broker data.
// All keys are prefixed with "docintel:" to avoid collisions.

const keyPrefix = "docintel:"

// taskKey returns the Hash key for a task body: docintel:task:{id}
func taskKey(id string) string { return keyPrefix + "task:" + id }

// queueKey returns the List key for a queue: docintel:queue:{name}
func queueKey(name string) string { return keyPrefix + "queue:" + name }

// unackedKey is the Set tracking delivered-but-unacked task IDs.
const unackedKey = keyPrefix + "unacked"

// deadKey returns the Hash key for a dead-letter entry: docintel:dead:{id}
func deadKey(id string) string { return keyPrefix + "dead:" + id }

// deadIDsKey is the Set tracking all dead-letter entry IDs for enumeration.
const deadIDsKey = keyPrefix + "dead_ids"
