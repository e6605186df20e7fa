package frametv

import (
	"encoding/json"
	"fmt"
	"os"
)

// The upload record maps each TV name to the file names it currently
// holds, so the next cycle knows what to delete before uploading.

func readUploadRecord(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read upload record: %w", err)
	}
	record := map[string][]string{}
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse upload record: %w", err)
	}
	return record, nil
}

// UploadedFiles returns the files recorded as uploaded to the named TV.
func UploadedFiles(path, tv string) ([]string, error) {
	record, err := readUploadRecord(path)
	if err != nil {
		return nil, err
	}
	return record[tv], nil
}

// RecordUploadedFiles replaces the named TV's entry in the upload record.
func RecordUploadedFiles(path, tv string, files []string) error {
	record, err := readUploadRecord(path)
	if err != nil {
		return err
	}
	record[tv] = files
	data, err := json.MarshalIndent(record, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode upload record: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write upload record: %w", err)
	}
	return nil
}
