package chord

import (
	"fmt"
	"os"

	"go.miragespace.co/dht/spec/protocol"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ExportFile writes the bindings held by this node to path as YAML. It is a
// point-in-time snapshot and is not kept up to date.
func (n *LocalNode) ExportFile(path string) error {
	n.mu.Lock()
	snapshot := n.extractAllBindings()
	n.mu.Unlock()

	b, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding bindings: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("writing bindings file: %w", err)
	}

	n.logger.Info("Exported bindings", zap.String("path", path), zap.Int("keys", len(snapshot.GetBindings())))

	return nil
}

// ImportFile merges bindings previously written by ExportFile
func (n *LocalNode) ImportFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading bindings file: %w", err)
	}

	snapshot := &protocol.NodeBindings{}
	if err := yaml.Unmarshal(b, snapshot); err != nil {
		return fmt.Errorf("decoding bindings file: %w", err)
	}

	n.mu.Lock()
	n.installBindings(snapshot)
	n.mu.Unlock()

	n.logger.Info("Imported bindings", zap.String("path", path), zap.Object("snapshot", snapshot))

	return nil
}
