package types

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// StateDiff is the per-block state delta served by the upstream node. The
// orchestrator treats the contents as opaque; it only encodes them into the
// blob payload handed to the DA layer.
type StateDiff struct {
	BlockNumber uint64      `json:"block_number"`
	BlockHash   string      `json:"block_hash"`
	Entries     []DiffEntry `json:"entries"`
}

// DiffEntry is a single storage slot change, both sides hex encoded.
type DiffEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// EncodeStateDiff packs a state diff into the blob payload submitted to the DA
// layer: an 8-byte big-endian entry count followed by 32-byte key/value words.
func EncodeStateDiff(diff *StateDiff) []byte {
	payload := make([]byte, 8, 8+len(diff.Entries)*64)
	binary.BigEndian.PutUint64(payload, uint64(len(diff.Entries)))
	for _, entry := range diff.Entries {
		key := common.HexToHash(entry.Key)
		value := common.HexToHash(entry.Value)
		payload = append(payload, key.Bytes()...)
		payload = append(payload, value.Bytes()...)
	}
	return payload
}
