package pipeflow

// Tag is a type-safe key for metadata on stages and scenes.
type Tag[T any] struct {
	key string
}

// NewTag creates a new tag with the given key
func NewTag[T any](key string) Tag[T] {
	return Tag[T]{key: key}
}

// Key returns the tag's key (for debugging)
func (t Tag[T]) Key() string {
	return t.key
}

// Tagged is anything that carries tags.
type Tagged interface {
	GetTag(tag any) (any, bool)
	SetTag(tag any, val any)
}

// Get retrieves the tag value from a stage or scene
func (t Tag[T]) Get(target Tagged) (T, bool) {
	val, ok := target.GetTag(t)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// GetOrDefault retrieves the tag value or returns a default
func (t Tag[T]) GetOrDefault(target Tagged, defaultVal T) T {
	if val, ok := t.Get(target); ok {
		return val
	}
	return defaultVal
}

// Set stores the tag value
func (t Tag[T]) Set(target Tagged, val T) {
	target.SetTag(t, val)
}

// GetFromScene retrieves the tag value from a scene
func (t Tag[T]) GetFromScene(scene *Scene) (T, bool) {
	return t.Get(scene)
}

var stageNameTag = NewTag[string]("stage.name")

// StageName is the tag holding a stage's display name.
func StageName() Tag[string] { return stageNameTag }
