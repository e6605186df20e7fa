package frametv

import (
	"encoding/json"
	"fmt"
)

// userContentCategory is the TV-side category holding user uploads.
const userContentCategory = "MY-C0002"

type contentItem struct {
	FileName  string `json:"file_name"`
	ContentID string `json:"content_id"`
}

// DeleteUploaded removes the named files from the TV's art store. File
// names are mapped to TV content ids through the current content list;
// names the TV no longer knows are skipped. Returns the deleted names.
func (c *Client) DeleteUploaded(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	resp, err := c.request("get_content_list", map[string]any{"category_id": userContentCategory})
	if err != nil {
		return nil, err
	}
	raw, _ := resp["content_list"].(string)
	var items []contentItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to parse content list from %s: %w", c.name, err)
	}
	idByName := make(map[string]string, len(items))
	for _, it := range items {
		if it.FileName != "" && it.ContentID != "" {
			idByName[it.FileName] = it.ContentID
		}
	}

	var (
		ids     []map[string]string
		deleted []string
	)
	for _, name := range names {
		id, ok := idByName[name]
		if !ok {
			c.log.WithField("file", name).Warn("no content id for uploaded file")
			continue
		}
		ids = append(ids, map[string]string{"content_id": id})
		deleted = append(deleted, name)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	delResp, err := c.request("delete_image_list", map[string]any{"content_id_list": ids})
	if err != nil {
		return nil, err
	}
	if _, ok := delResp["content_id_list"]; !ok {
		return nil, fmt.Errorf("deletion not confirmed by %s", c.name)
	}
	c.log.WithField("count", len(deleted)).Debug("deleted old uploads")
	return deleted, nil
}
