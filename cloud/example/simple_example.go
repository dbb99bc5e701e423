// Command simple_example opens a pool, writes a handful of pairs, and
// uploads a backup archive of it to S3. It exists to exercise cloud/aws
// end to end the way the teacher's simple_example.go exercised its own
// S3-backed pebble.DB, just against this engine's single-file backup path
// instead of a live-vfs-proxy one.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/pmbackend/pmbackend"
	"github.com/pmbackend/pmbackend/cloud/aws"
	"github.com/pmbackend/pmbackend/cloud/common"
)

func main() {
	path := "/tmp/pmbackend-example.pmb"
	os.Remove(path)

	s, err := pmbackend.Open(pmbackend.Options{
		Path:          path,
		DataSize:      64 * 1024 * 1024,
		MetaSize:      16 * 1024 * 1024,
		MaxKeyLen:     64,
		MaxValLen:     4096,
		MetaMaxKeyLen: 32,
		MetaMaxValLen: 512,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	pairs := make([]pmbackend.Pair, 0, 1000)
	for i := 0; i < 1000; i++ {
		pairs = append(pairs, pmbackend.Pair{
			Key: []byte(fmt.Sprintf("hello_%d", i)),
			Val: []byte("world"),
		})
	}
	ids, stats, err := pmbackend.IngestPairs(s, pmbackend.RegionData, pairs)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %d pairs across %d transactions\n", stats.Written, stats.Transactions)

	key, val, err := s.Get(ids[0])
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s %s\n", key, val)

	helper, err := common.NewS3Helper(common.CloudFsOption{
		Bucket: os.Getenv("S3_BUCKET"),
		Prefix: "pmbackend-example",
		Region: "ap-south-1",
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := aws.UploadBackup(s, helper, "pool.bak"); err != nil {
		log.Fatal(err)
	}
}
