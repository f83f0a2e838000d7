package models

import "encoding/json"

// TagList decodes the user's JSON tag column. An empty or malformed column
// yields an empty list.
func (u *User) TagList() []string {
	var tags []string
	if u.Tags != "" {
		json.Unmarshal([]byte(u.Tags), &tags)
	}
	return tags
}

// AddTag appends tag to the user's tag set. Returns false if the tag was
// already present (set semantics, no duplicates).
func (u *User) AddTag(tag string) bool {
	tags := u.TagList()
	for _, t := range tags {
		if t == tag {
			return false
		}
	}
	tags = append(tags, tag)
	raw, _ := json.Marshal(tags)
	u.Tags = string(raw)
	return true
}

// CollectedMap decodes the user's collected_data column.
func (u *User) CollectedMap() map[string]string {
	data := make(map[string]string)
	if u.CollectedData != "" {
		json.Unmarshal([]byte(u.CollectedData), &data)
	}
	return data
}

// SetCollected stores key=value into collected_data.
func (u *User) SetCollected(key, value string) {
	data := u.CollectedMap()
	data[key] = value
	raw, _ := json.Marshal(data)
	u.CollectedData = string(raw)
}

// StateDataMap decodes the user's free-form state_data column.
func (u *User) StateDataMap() map[string]any {
	data := make(map[string]any)
	if u.StateData != "" {
		json.Unmarshal([]byte(u.StateData), &data)
	}
	return data
}

// AppendStepHistory appends one step record to the session's history column.
func (s *ScenarioSession) AppendStepHistory(entry map[string]any) {
	var history []map[string]any
	if s.StepHistory != "" {
		json.Unmarshal([]byte(s.StepHistory), &history)
	}
	history = append(history, entry)
	raw, _ := json.Marshal(history)
	s.StepHistory = string(raw)
}
