package domain

// BootstrapData describes the first administrator created on an empty directory.
type BootstrapData struct {
	AdminEmail    string
	AdminName     string
	AdminPassword string
}
