// hashpass 生成 AUTH_TOKEN_HASH 用的 bcrypt 哈希，这样服务端配置里不用保存明文 token。
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	var token string
	switch len(os.Args) {
	case 2:
		token = os.Args[1]
	case 1:
		// 不带参数时从 stdin 读，避免 token 留在 shell history 里
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatal("usage: hashpass <token>  (or pipe the token on stdin)")
		}
		token = strings.TrimRight(line, "\r\n")
	default:
		log.Fatal("usage: hashpass <token>  (or pipe the token on stdin)")
	}
	if token == "" {
		log.Fatal("token is empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("AUTH_TOKEN_HASH=%s\n", hash)
}
