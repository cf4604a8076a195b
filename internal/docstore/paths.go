package docstore

import "strings"

// Paths builds document and collection paths inside one application
// namespace, artifacts/{appId}, so several deployments can share a store.
type Paths struct {
	AppID string
}

func (p Paths) root() string { return "artifacts/" + p.AppID }

// Scores is the public leaderboard collection.
func (p Paths) Scores() string { return p.root() + "/public/data/scores" }

// ContestTexts is the admin-curated passage pool.
func (p Paths) ContestTexts() string { return p.root() + "/public/data/contestTexts" }

// JoinRequests holds every contest join request.
func (p Paths) JoinRequests() string { return p.root() + "/public/data/contestJoinRequests" }

// Profile is the single profile document of a user.
func (p Paths) Profile(uid string) string { return p.root() + "/users/" + uid + "/profile/data" }

// History is the private score collection of a user.
func (p Paths) History(uid string) string { return p.root() + "/users/" + uid + "/my_scores" }

// Join appends a document id to a collection path.
func Join(collection, id string) string { return collection + "/" + id }

// Split returns the collection and id parts of a document path.
func Split(path string) (collection, id string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
