package relay

import (
	"regexp"

	"github.com/google/uuid"
)

var objectNameRegexp = regexp.MustCompile(objectNamePattern)

func isValidObjectName(name string) bool {
	return objectNameRegexp.MatchString(name)
}

func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
