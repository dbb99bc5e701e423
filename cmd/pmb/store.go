package main

import "github.com/pmbackend/pmbackend"

func openStore() (*pmbackend.Store, error) {
	return pmbackend.Open(pmbackend.Options{
		Path:          rootFlags.path,
		DataSize:      rootFlags.dataSize,
		MetaSize:      rootFlags.metaSize,
		MaxKeyLen:     rootFlags.maxKeyLen,
		MaxValLen:     rootFlags.maxValLen,
		MetaMaxKeyLen: rootFlags.metaMaxKeyLen,
		MetaMaxValLen: rootFlags.metaMaxValLen,
	})
}
