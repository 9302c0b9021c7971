package dataprocessing

// Canonical column names of the WMS extracts. Header spellings in the raw
// files vary in case and padding; Clean normalizes them to these.
const (
	ColWarehouse      = "Warehouse"
	ColWarehouseZone  = "Warehouse Zone"
	ColZone           = "Zone"
	ColSKUCode        = "SKU Code"
	ColSKUDesc        = "SKU Desc"
	ColSKUDescription = "SKU Description"
	ColProductDesc    = "Product Description"
	ColSKUCategory    = "SKU Category"
	ColSKUSubCategory = "SKU Sub Category"

	// Order summary extract.
	ColOrderReference = "Order Reference"
	ColOrderStatus    = "OrderStatus"
	ColOrderDate      = "Order Date"
	ColInvoiceNumber  = "Invoice Number"
	ColInvoiceQty     = "Invoice quantity"
	ColInvoiceAmount  = "InvoiceAmount"

	// Sales return extract (its own spellings for the shared key).
	ColReturnSKUCode    = "Sku Code"
	ColChallanNumber    = "Invoice / Challan Number"
	ColReturnQuantity   = "Quantity"
	ColCreditNoteAmount = "TotalCreditNoteAmount"

	// Inventory extracts.
	ColAvailableQty = "Available Quantity"
	ColOpenOrderQty = "Open Order quantity"
	ColPrice        = "Price"
	ColBatch        = "Batch"

	// Derived columns.
	ColMerge       = "Merge"
	ColReturnQty   = "Return Qty"
	ColReturnValue = "Return Value"
	ColSalesQty    = "Sales Qty"
	ColSalesValue  = "Sales Value"
	ColFinalQty    = "Final Qty"
	ColFinalValue  = "Final Value"
	ColValue       = "Value"
)
