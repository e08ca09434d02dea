package model

import "encoding/json"

// EncodeJSON marshals v into a string column value. Nil maps and slices encode
// to their empty literal so columns never hold Go-specific null forms.
func EncodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeJSON unmarshals a string column value into v. An empty column is
// treated as absent.
func DecodeJSON(data string, v any) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}
