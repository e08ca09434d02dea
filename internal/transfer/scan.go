package transfer

import (
	"regexp"

	mapset "github.com/deckarep/golang-set/v2"
)

// Rich-text fields reference uploaded images by logical path, e.g.
// ![caption](/images/name/screenshot.png). The scan is plain text matching;
// references are never rewritten, only used to decide which attachment bytes
// an export has to carry.
var imageRefPattern = regexp.MustCompile(`/images/name/([^"'()\s\\]+)`)

// referencedImages collects the image names mentioned anywhere in the given
// text blobs.
func referencedImages(texts ...string) mapset.Set[string] {
	refs := mapset.NewSet[string]()
	for _, t := range texts {
		for _, m := range imageRefPattern.FindAllStringSubmatch(t, -1) {
			refs.Add(m[1])
		}
	}
	return refs
}
