package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"stockroom.org/internal/inventory"
	"stockroom.org/internal/ledger"
)

type entryRequest struct {
	CatalogName             string `json:"catalogName"`
	ReceiptDate             string `json:"receiptDate"`
	QuantityReceived        int64  `json:"quantityReceived"`
	DeliveryDate            string `json:"deliveryDate"`
	IssueQuantity           int64  `json:"issueQuantity"`
	DistributionDestination string `json:"distributionDestination"`
	Requester               string `json:"requester"`
	Remarks                 string `json:"remarks"`
}

func (req entryRequest) entry() ledger.Entry {
	return ledger.Entry{
		CatalogName:             req.CatalogName,
		ReceiptDate:             req.ReceiptDate,
		QuantityReceived:        req.QuantityReceived,
		DeliveryDate:            req.DeliveryDate,
		IssueQuantity:           req.IssueQuantity,
		DistributionDestination: req.DistributionDestination,
		Requester:               req.Requester,
		Remarks:                 req.Remarks,
	}
}

type balanceResponse struct {
	CatalogName string `json:"catalogName"`
	Stock       int64  `json:"stock"`
}

type entriesResponse struct {
	CatalogName string           `json:"catalogName"`
	Entries     []ledger.Balance `json:"entries"`
}

func (a *API) listCatalogs(w http.ResponseWriter, r *http.Request) {
	catalogs, err := a.inv.ListCatalogs(r.Context(), principalOf(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"catalogs": catalogs})
}

func (a *API) listEntries(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	balances, err := a.inv.ListCatalogEntries(r.Context(), principalOf(r), name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if balances == nil {
		balances = []ledger.Balance{}
	}
	writeJSON(w, http.StatusOK, entriesResponse{CatalogName: name, Entries: balances})
}

func (a *API) getBalance(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	stock, err := a.inv.GetStockBalance(r.Context(), principalOf(r), name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{CatalogName: name, Stock: stock})
}

func (a *API) createEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.inv.CreateCatalogEntry(r.Context(), principalOf(r), viaParam(r), req.entry())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/catalog-entries/"+res.ID)
	writeResult(w, http.StatusCreated, res)
}

func (a *API) updateEntry(w http.ResponseWriter, r *http.Request) {
	var patch inventory.EntryPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.inv.UpdateCatalogEntry(r.Context(), principalOf(r), viaParam(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

func (a *API) deleteEntry(w http.ResponseWriter, r *http.Request) {
	res, err := a.inv.DeleteCatalogEntry(r.Context(), principalOf(r), viaParam(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

type orderRequest struct {
	CatalogName   string `json:"catalogName"`
	OrderQuantity int64  `json:"orderQuantity"`
	Requester     string `json:"requester"`
	Message       string `json:"message"`
	OrderDate     string `json:"orderDate"`
	Status        string `json:"status"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.inv.ListOrders(r.Context(), principalOf(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if orders == nil {
		orders = []inventory.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	order := inventory.Order{
		CatalogName:   req.CatalogName,
		OrderQuantity: req.OrderQuantity,
		Requester:     req.Requester,
		Message:       req.Message,
		OrderDate:     req.OrderDate,
	}
	if strings.TrimSpace(req.Status) != "" {
		status, err := inventory.ParseOrderStatus(req.Status)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		order.Status = status
	}
	res, err := a.inv.CreateOrder(r.Context(), principalOf(r), viaParam(r), order)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/orders/"+res.ID)
	writeResult(w, http.StatusCreated, res)
}

func (a *API) deleteOrder(w http.ResponseWriter, r *http.Request) {
	res, err := a.inv.DeleteOrder(r.Context(), principalOf(r), viaParam(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

func (a *API) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status, err := inventory.ParseOrderStatus(req.Status)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.inv.UpdateOrderStatus(r.Context(), principalOf(r), chi.URLParam(r, "id"), status)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, res)
}
