package enum

type EntityType string

const (
	FEED     EntityType = "FEED"
	NEWS     EntityType = "NEWS"
	BOOKMARK EntityType = "BOOKMARK"
)

func (entityType EntityType) String() string {
	return string(entityType)
}

func GetEntityType(s string) EntityType {
	return EntityType(s)
}
