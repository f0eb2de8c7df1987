package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pingcap/log"
	"go.uber.org/zap"
	"xacto/pkg/client"
	"xacto/pkg/txn"
)

var addr = flag.String("addr", "127.0.0.1:9999", "xacto server address")

func main() {
	flag.Parse()

	// Test 1:  Normal Read and Write
	update(func(c *client.Client) {
		_, _ = c.Put([]byte("HDD"), []byte("Hard disk"))
	})
	update(func(c *client.Client) {
		_, _ = c.Put([]byte("HDD"), []byte("Hard disk drive"))
	})
	view("HDD")

	// Test 2: Conflict, the older transaction writes after the newer one
	older := connect()
	_, _, _, _ = older.Get([]byte("SSD"))
	newer := connect()
	_, _ = newer.Put([]byte("HDD"), []byte("Hard disk"))
	status, _ := older.Put([]byte("HDD"), []byte("Hard disk, older"))
	fmt.Println("older put:", status)
	status, _ = newer.Commit()
	fmt.Println("newer commit:", status)
	older.Close()
	newer.Close()
	view("HDD")

	// Test 3: Dependency, the reader commits only after the writer it read from
	writer := connect()
	_, _ = writer.Put([]byte("SSD"), []byte("Solid state drive"))
	reader := connect()
	value, _, _, _ := reader.Get([]byte("SSD"))
	fmt.Println("reader saw:", string(value))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		status, err := reader.Commit()
		if err != nil {
			log.Fatal("reader commit failed", zap.Error(err))
		}
		fmt.Println("reader commit:", status)
	}()
	time.Sleep(25 * time.Millisecond)
	status, _ = writer.Commit()
	fmt.Println("writer commit:", status)
	wg.Wait()
	writer.Close()
	reader.Close()
}

func connect() *client.Client {
	c, err := client.Dial(*addr)
	if err != nil {
		log.Fatal("connect failed", zap.String("addr", *addr), zap.Error(err))
	}
	return c
}

func update(fn func(c *client.Client)) {
	c := connect()
	defer c.Close()
	fn(c)
	status, err := c.Commit()
	if err != nil || status != txn.Committed {
		log.Fatal("update failed", zap.Stringer("status", status), zap.Error(err))
	}
}

func view(key string) {
	c := connect()
	defer c.Close()
	value, exists, _, err := c.Get([]byte(key))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Println(exists)
	fmt.Println(string(value))
	_, _ = c.Commit()
}
