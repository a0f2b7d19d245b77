package domain

// User and Group are owned by external services; the core reads them as
// immutable lookup data within a request.

type User struct {
	ID        string `bson:"_id" json:"id"`
	Username  string `bson:"username" json:"username"`
	PushToken string `bson:"push_token,omitempty" json:"-"`
	Avatar    string `bson:"avatar,omitempty" json:"avatar,omitempty"`
}

type Group struct {
	ID      string   `bson:"_id" json:"id"`
	Name    string   `bson:"name" json:"name"`
	Owner   string   `bson:"owner" json:"owner"`
	Members []string `bson:"members" json:"members"`
	Avatar  string   `bson:"avatar,omitempty" json:"avatar,omitempty"`
}
