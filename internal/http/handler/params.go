package handler

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/sandeepkv93/paygw-mollie/internal/service"
)

var (
	componentRe   = regexp.MustCompile(`^[a-z][a-z0-9_]{0,99}$`)
	paymentAreaRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,49}$`)
)

type itemParams struct {
	Component   string
	PaymentArea string
	ItemID      uint
}

func parseItemParams(r *http.Request) (itemParams, error) {
	q := r.URL.Query()
	component := strings.TrimSpace(q.Get("component"))
	if !componentRe.MatchString(component) {
		return itemParams{}, fmt.Errorf("invalid component")
	}
	paymentArea := strings.TrimSpace(q.Get("paymentarea"))
	if !paymentAreaRe.MatchString(paymentArea) {
		return itemParams{}, fmt.Errorf("invalid paymentarea")
	}
	itemID, err := parseUintParam(q.Get("itemid"))
	if err != nil {
		return itemParams{}, fmt.Errorf("invalid itemid")
	}
	return itemParams{Component: component, PaymentArea: paymentArea, ItemID: itemID}, nil
}

func parseCallbackRef(r *http.Request) (service.CallbackRef, error) {
	item, err := parseItemParams(r)
	if err != nil {
		return service.CallbackRef{}, err
	}
	internalID, err := parseUintParam(r.URL.Query().Get("internalid"))
	if err != nil || internalID == 0 {
		return service.CallbackRef{}, fmt.Errorf("invalid internalid")
	}
	return service.CallbackRef{
		Component:   item.Component,
		PaymentArea: item.PaymentArea,
		ItemID:      item.ItemID,
		InternalID:  internalID,
	}, nil
}

func parseUintParam(raw string) (uint, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 0)
	if err != nil {
		return 0, err
	}
	return uint(n), nil
}
