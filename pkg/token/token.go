// Package token は利用者の身元 {name, key} を署名付きトークンとして発行・検証する。
//
// 秘密鍵はプロセス起動時に一度だけ与えられ、以後変更されない。
// 検証は失敗側に倒す。不正なトークンから部分的なクレームを返すことはない。
package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// issuer はトークンのiss。
const issuer = "postboard"

var (
	// ErrInvalidToken はトークンの形式不正・署名不一致・必須項目欠落を表す。
	ErrInvalidToken = errors.New("invalid token")
	// ErrEmptySecret は署名用の秘密鍵が空であることを表す。
	ErrEmptySecret = errors.New("token secret must not be empty")
)

// Claims はトークンに含まれる身元情報。
// 有効期限は持たない。同じ入力からは常に同じトークンが生成される。
type Claims struct {
	jwt.RegisteredClaims
	// Name は利用者名。
	Name string `json:"name"`
	// Key は発行時点のAPIキー。
	Key string `json:"key"`
}

// Service はトークンの発行と検証を行う。
type Service struct {
	secret []byte
	parser *jwt.Parser
}

// NewService は秘密鍵からServiceを生成する。
func NewService(secret string) (*Service, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Service{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
		),
	}, nil
}

// Issue はnameとkeyを署名付きトークンに符号化する。
func (s *Service) Issue(name, key string) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
		Name:             name,
		Key:              key,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証してクレームを返す。
// どのような理由で失敗してもErrInvalidTokenを返す。
func (s *Service) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	tok, err := s.parser.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Name == "" || claims.Key == "" {
		return nil, fmt.Errorf("%w: name or key missing", ErrInvalidToken)
	}
	return claims, nil
}
