package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/sekai02/pagewrite/internal/device"
	"github.com/sekai02/pagewrite/internal/ids"
)

// SystemMetadata is everything needed to reattach persisted devices after a
// restart. Stream sessions are not kept; an open program command does not
// survive the process.
type SystemMetadata struct {
	IDGen   ids.GeneratorSnapshot
	Devices map[ids.DeviceID]device.Spec
}

func SaveMetadata(idGen *ids.Generator, deviceMgr *device.Manager) ([]byte, error) {
	metadata := SystemMetadata{
		IDGen:   idGen.Snapshot(),
		Devices: deviceMgr.SnapshotDevices(),
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	return data, nil
}

func LoadMetadata(data []byte, idGen *ids.Generator, deviceMgr *device.Manager) error {
	var metadata SystemMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return fmt.Errorf("unmarshal metadata: %w", err)
	}

	idGen.Restore(metadata.IDGen)
	if err := deviceMgr.RestoreDevices(metadata.Devices); err != nil {
		return fmt.Errorf("restore devices: %w", err)
	}

	return nil
}
