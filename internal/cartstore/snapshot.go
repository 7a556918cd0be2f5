package cartstore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
)

// FileSnapshotter persists the cart as a JSON file.
type FileSnapshotter struct {
	Path string
}

func (f *FileSnapshotter) Save(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, data, 0o600)
}

func (f *FileSnapshotter) Load() (Message, bool, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Message{}, false, nil
		}
		return Message{}, false, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, false, err
	}
	return msg, true, nil
}
