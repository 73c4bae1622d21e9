package ecsync

import (
	"fmt"
	"strconv"
)

// PartitionKey identifies a stream of updates that must be applied in order.
type PartitionKey struct {
	StoreID  int64
	Platform string
	Field    string
}

// GroupID returns the queue group id, e.g. "ochanoko-42-stock-number".
func (k PartitionKey) GroupID() string {
	return fmt.Sprintf("%s-%d-%s", k.Platform, k.StoreID, k.Field)
}

// TaskBatch is the ordered payload list for one partition of one kind.
type TaskBatch struct {
	Key      PartitionKey
	Kind     Kind
	TaskKind string
	// Payloads are in fetch order (ascending record id).
	Payloads []Payload
	// RecordIDs are the records that produced Payloads, same order.
	RecordIDs []int64
}

type storeAccumulator struct {
	storeID int64
	// batches is indexed like the platform table.
	batches []*TaskBatch
}

// BuildBatches groups one kind's fetched records into TaskBatches.
//
// Records are visited once in the given order, so payload order inside a batch equals
// fetch order. Batches are returned by first-seen store, then in platform table order,
// which makes the result deterministic for a given input.
func BuildBatches(kind Kind, records []Record, platforms []Platform) []TaskBatch {
	var (
		stores []*storeAccumulator
		index  = make(map[int64]*storeAccumulator)
	)

	for _, record := range records {
		acc, ok := index[record.StoreID]
		if !ok {
			acc = &storeAccumulator{storeID: record.StoreID, batches: make([]*TaskBatch, len(platforms))}
			index[record.StoreID] = acc
			stores = append(stores, acc)
		}

		for i, platform := range platforms {
			route, ok := platform.Routes[kind]
			if !ok || route.Build == nil {
				continue
			}
			payload, ok := route.Build(record)
			if !ok {
				continue
			}

			batch := acc.batches[i]
			if batch == nil {
				batch = &TaskBatch{
					Key:      PartitionKey{StoreID: record.StoreID, Platform: platform.Name, Field: kind.Field()},
					Kind:     kind,
					TaskKind: route.TaskKind,
				}
				acc.batches[i] = batch
			}
			batch.Payloads = append(batch.Payloads, payload)
			batch.RecordIDs = append(batch.RecordIDs, record.ID)
		}
	}

	out := make([]TaskBatch, 0, len(stores)*len(platforms))
	for _, acc := range stores {
		for _, batch := range acc.batches {
			if batch != nil {
				out = append(out, *batch)
			}
		}
	}

	return out
}

// RecordIDs returns the ids of all records in fetch order.
func RecordIDs(records []Record) []int64 {
	ids := make([]int64, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}

	return ids
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
