package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/a/b.jpg", JoinURL("https://cdn.example.com/", "/a/b.jpg"))
	assert.Equal(t, "/files/a.png", JoinURL("/files", "a.png"))
}
