package flowchat

// Version is the library version. Release builds override it with
// -ldflags "-X github.com/aretw0/flowchat.Version=...".
var Version = "0.3.0-dev"
