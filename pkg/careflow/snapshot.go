package careflow

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// SnapshotFormat tags the encoding written by EncodeSnapshot.
const SnapshotFormat = 1

type snapshot struct {
	Format   int      `json:"format"`
	Instance Instance `json:"instance"`
}

// EncodeSnapshot serializes an instance for a checkpoint store.
func EncodeSnapshot(in Instance) ([]byte, error) {
	data, err := sonic.ConfigStd.Marshal(snapshot{Format: SnapshotFormat, Instance: in})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot restores an instance written by EncodeSnapshot and checks
// its invariants.
func DecodeSnapshot(data []byte) (Instance, error) {
	var snap snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Instance{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Format != SnapshotFormat {
		return Instance{}, fmt.Errorf("%w: %d", ErrSnapshotFormat, snap.Format)
	}
	if snap.Instance.Collected == nil {
		snap.Instance.Collected = make(map[string]string)
	}
	if err := snap.Instance.Validate(); err != nil {
		return Instance{}, err
	}
	return snap.Instance, nil
}
