package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleEntry() Entry {
	return Entry{
		Identity: ServerIdentity{Name: "github", Version: "1.0"},
		Tools: []ToolDescriptor{
			{Backend: "github", Name: "create_issue"},
			{Backend: "github", Name: "list_issues"},
		},
		Resources: []ResourceDescriptor{
			{Backend: "github", URI: "github://repo/readme"},
		},
	}
}

func TestCache_InstallAndEntry(t *testing.T) {
	c := NewCache()
	c.Install("github", sampleEntry())

	entry, ok := c.Entry("github")
	assert.True(t, ok)
	assert.Len(t, entry.Tools, 2)
	assert.True(t, c.Has("github"))
}

func TestCache_MissingEntryNoPanic(t *testing.T) {
	c := NewCache()
	_, ok := c.Entry("ghost")
	assert.False(t, ok)
	assert.False(t, c.Has("ghost"))
}

func TestCache_Tool(t *testing.T) {
	c := NewCache()
	c.Install("github", sampleEntry())

	tool, ok := c.Tool("github", "create_issue")
	assert.True(t, ok)
	assert.Equal(t, "create_issue", tool.Name)

	_, ok = c.Tool("github", "bogus")
	assert.False(t, ok)

	_, ok = c.Tool("ghost", "create_issue")
	assert.False(t, ok)
}

func TestCache_ToolNames_SortedAndEmpty(t *testing.T) {
	c := NewCache()
	c.Install("github", sampleEntry())
	assert.Equal(t, []string{"create_issue", "list_issues"}, c.ToolNames("github"))
	assert.Nil(t, c.ToolNames("ghost"))
}

func TestCache_Resource(t *testing.T) {
	c := NewCache()
	c.Install("github", sampleEntry())

	res, ok := c.Resource("github", "github://repo/readme")
	assert.True(t, ok)
	assert.Equal(t, "github://repo/readme", res.URI)

	_, ok = c.Resource("github", "github://repo/missing")
	assert.False(t, ok)
}

func TestCache_Remove(t *testing.T) {
	c := NewCache()
	c.Install("github", sampleEntry())
	c.Remove("github")
	assert.False(t, c.Has("github"))
}

func TestCache_Clear(t *testing.T) {
	c := NewCache()
	c.Install("github", sampleEntry())
	c.Install("slack", sampleEntry())
	c.Clear()
	assert.Empty(t, c.Backends())
}

func TestCache_Backends_Sorted(t *testing.T) {
	c := NewCache()
	c.Install("slack", sampleEntry())
	c.Install("github", sampleEntry())
	c.Install("jira", sampleEntry())
	assert.Equal(t, []string{"github", "jira", "slack"}, c.Backends())
}

func TestCache_EntryIsCopyNotAlias(t *testing.T) {
	c := NewCache()
	c.Install("github", sampleEntry())

	entry, _ := c.Entry("github")
	entry.Tools = append(entry.Tools, ToolDescriptor{Name: "injected"})

	fresh, _ := c.Entry("github")
	assert.Len(t, fresh.Tools, 2, "mutating a returned Entry must not affect the cache")
}

func TestCache_InstallReplacesAtomically(t *testing.T) {
	c := NewCache()
	c.Install("github", sampleEntry())
	c.Install("github", Entry{Identity: ServerIdentity{Name: "github", Version: "2.0"}})

	entry, _ := c.Entry("github")
	assert.Equal(t, "2.0", entry.Identity.Version)
	assert.Empty(t, entry.Tools)
}
