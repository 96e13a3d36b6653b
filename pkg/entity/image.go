package entity

import "strings"

// ImageRef is a Docker image reference split into repository and tag.
type ImageRef struct {
	Repository string
	Tag        string
}

// ParseImageRef splits an image reference on its last colon. A colon
// that belongs to a registry port (registry:5000/repo) is not a tag
// separator, and a reference without a tag defaults to latest.
func ParseImageRef(image string) ImageRef {
	idx := strings.LastIndex(image, ":")
	if idx < 0 || strings.Contains(image[idx+1:], "/") {
		return ImageRef{Repository: image, Tag: "latest"}
	}
	return ImageRef{Repository: image[:idx], Tag: image[idx+1:]}
}

// String reassembles the reference.
func (r ImageRef) String() string {
	return r.Repository + ":" + r.Tag
}
