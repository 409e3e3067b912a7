package storage

import "pagepress/internal/ports"

// Provider is the artifact store shared by the API and the sweeper.
// It is an alias to ports.StorageProvider to keep call-sites simple.
type Provider = ports.StorageProvider
