package validation

import "testing"

func TestValidateRoomName(t *testing.T) {
	valid := []string{"movie-night", "Room_42", "abc", "a1b2c3"}
	for _, name := range valid {
		if err := ValidateRoomName(name); err != nil {
			t.Errorf("expected %q to be valid, got: %v", name, err)
		}
	}

	invalid := []string{
		"",
		"  ",
		"ab", // too short
		"this-room-name-is-way-too-long-to-be-accepted",
		"room name",
		"room/name",
		"комната",
		"api",    // reserved
		"CREATE", // reserved, case-insensitive
	}
	for _, name := range invalid {
		if err := ValidateRoomName(name); err == nil {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}

func TestValidateVisibility(t *testing.T) {
	for _, v := range []string{"public", "unlisted", "private"} {
		if err := ValidateVisibility(v); err != nil {
			t.Errorf("expected %q to be valid, got: %v", v, err)
		}
	}
	for _, v := range []string{"", "hidden", "PUBLIC"} {
		if err := ValidateVisibility(v); err == nil {
			t.Errorf("expected %q to be rejected", v)
		}
	}
}

func TestValidateChatText(t *testing.T) {
	if err := ValidateChatText("hello"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateChatText("   "); err == nil {
		t.Error("expected whitespace-only text to be rejected")
	}
	long := make([]byte, 2001)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidateChatText(string(long)); err == nil {
		t.Error("expected oversized text to be rejected")
	}
}
